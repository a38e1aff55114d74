package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/config"
	"github.com/ANIKETSHETTY47/iot-live-metrics-hub/internal/logger"
)

type metric struct {
	Name  string    `json:"name"`
	Value float64   `json:"value"`
	TS    time.Time `json:"ts"`
}

type payload struct {
	Metrics []metric `json:"metrics"`
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger.Init(config.LogLevel(), config.Development())

	opts := mqtt.NewClientOptions().
		AddBroker(config.MQTTBroker()).
		SetClientID(config.MQTTClientID() + "-simulator")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	devices := config.SimDeviceIDs()
	if len(devices) == 0 {
		log.Fatal().Msg("SIM_DEVICE_IDS is empty")
	}

	for i := 0; i < config.SimCount(); i++ {
		device := devices[i%len(devices)]
		data, _ := json.Marshal(sample(time.Now().UTC(), config.SimSpikeRatio()))

		topic := fmt.Sprintf("devices/%s/metrics", device)
		token := client.Publish(topic, config.MQTTQoS(), false, data)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("publish failed")
		}
		time.Sleep(config.SimInterval())
	}
	log.Info().Int("messages", config.SimCount()).Msg("simulation done")
}

// sample occasionally pushes values out of the usual band so threshold rules fire.
func sample(now time.Time, spikeRatio float64) payload {
	temperature := 20 + rand.Float64()*8
	humidity := 40 + rand.Float64()*20
	if rand.Float64() < spikeRatio {
		temperature += 20
		humidity -= 35
	}
	return payload{Metrics: []metric{
		{Name: "temperature", Value: temperature, TS: now},
		{Name: "humidity", Value: humidity, TS: now},
		{Name: "battery", Value: 3.3 + rand.Float64()*0.9, TS: now},
	}}
}
