package main

import (
	"encoding/json"
	"flag"
	"io/ioutil"
	"os"
)

type Config struct {
	Mqtt struct {
		Host string `json:"host,omitempty"`
		User string `json:"user,omitempty"`
		Pass string `json:"pass,omitempty"`
	} `json:"mqtt,omitempty"`
	Socket  string `json:"socket,omitempty"`
	Bind    int    `json:"bind,omitempty"`
	Timeout int    `json:"timeout,omitempty"` // request timeout, seconds

	logs string
}

// mainInitConfig loads /data/lanbox2mqtt.json, then lets flags override it.
// Runs before the logger, so config errors go to plain stderr.
func mainInitConfig() {
	data, err := ioutil.ReadFile("/data/lanbox2mqtt.json")
	if err == nil {
		if err = json.Unmarshal(data, config); err != nil {
			println("can't parse config:", err.Error())
			os.Exit(1)
		}
	}

	if config.Mqtt.Host == "" {
		config.Mqtt.Host = "localhost:1883"
	}
	if config.Socket == "" {
		config.Socket = "/tmp/miio_agent.socket"
	}
	if config.Timeout == 0 {
		config.Timeout = 10
	}

	flag.StringVar(&config.Mqtt.Host, "mqtt", config.Mqtt.Host, "MQTT broker host:port")
	flag.StringVar(&config.Socket, "socket", config.Socket, "Path to miio agent socket")
	flag.IntVar(&config.Bind, "bind", config.Bind, "Address to bind on the miio agent")
	flag.IntVar(&config.Timeout, "timeout", config.Timeout, "Request timeout in seconds")
	flag.StringVar(&config.logs, "log", "", "values: trace,debug,info,miio")

	flag.Parse()
}
