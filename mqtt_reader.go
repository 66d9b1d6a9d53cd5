package main

import (
	"bytes"
	"net"
	"time"

	proto "github.com/huin/mqtt"
	"github.com/jeffallen/mqtt"
	"github.com/rs/zerolog/log"
)

var mqttClient *mqtt.ClientConn

func mqttReader() {
	for {
		conn, err := net.Dial("tcp", config.Mqtt.Host)
		if err != nil {
			log.Error().Err(err).Send()
		} else {
			mqttClient = mqtt.NewClientConn(conn)
			mqttClient.ClientId = "lanbox2mqtt"
			if err = mqttClient.Connect(config.Mqtt.User, config.Mqtt.Pass); err != nil {
				log.Error().Err(err).Send()
			} else {
				log.Info().Str("host", config.Mqtt.Host).Msg("Connected to MQTT broker")

				mqttClient.Subscribe([]proto.TopicQos{
					{Topic: TopicCommand},
				})
				for m := range mqttClient.Incoming {
					buf := bytes.Buffer{}
					if err = m.Payload.WritePayload(&buf); err != nil {
						log.Error().Err(err).Send()
						continue
					}

					if m.TopicName == TopicCommand {
						router.OnCommand(buf.Bytes())
					}
				}
			}
			mqttClient = nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func mqttWriter() {
	for m := range router.pub {
		mqttPublish(m.topic, m.payload)
	}
}

func mqttPublish(topic string, payload []byte) {
	if mqttClient == nil {
		return
	}

	msg := &proto.Publish{
		Header:    proto.Header{},
		TopicName: topic,
		Payload:   proto.BytesPayload(payload),
	}
	mqttClient.Publish(msg)
}
