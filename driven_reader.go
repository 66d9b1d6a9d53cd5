package main

import (
	"bufio"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// drivenReader respawns ha_driven and scrapes res/report events from its log
// output. The daemon prints received LAN messages after a ">>" marker.
func drivenReader() {
	_ = exec.Command("killall", "-9", "ha_driven").Run()
	time.Sleep(500 * time.Millisecond)

	for {
		cmd := exec.Command("ha_driven")
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Warn().Err(err).Send()
			time.Sleep(time.Second)
			continue
		}
		if err = cmd.Start(); err != nil {
			log.Warn().Err(err).Msg("Can't run ha_driven")
			time.Sleep(time.Second)
			continue
		}

		log.Info().Msg("Reading logs from ha_driven")

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.Contains(line, "onReceiveMessage") ||
				!strings.Contains(line, "method") ||
				!strings.Contains(line, "res/report") {
				continue
			}

			i := strings.Index(line, ">>")
			if i < 0 {
				continue
			}
			fields := strings.Fields(line[i+2:])
			if len(fields) == 0 {
				continue
			}

			router.publish(TopicResport, []byte(fields[0]))
		}

		_ = cmd.Wait()
		time.Sleep(time.Second)
	}
}
