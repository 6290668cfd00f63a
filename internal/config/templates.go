package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "link":
		return linkTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const linkTemplate = `name = "wavectl"
protocol = "NORMAL"
scheme = "STRONG_OVERLAPPING_3"
compression = false
outbox_dir = ""
inbox_dir = "inbox"
gc_minutes = 60

[serial]
port = "/dev/ttyUSB0"
baud_rate = 115200

[monitor]
addr = ":9300"
cors_origins = ["http://localhost:3000"]

[receive]
base_seconds = 30
per_packet_seconds = 5
min_seconds = 60
`
