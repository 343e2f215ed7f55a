package util

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

type config struct {
	Debug uint64 `default:"0"`
}

var debug uint64

func init() {
	var c config
	if err := envconfig.Process("clusterfs", &c); err == nil {
		debug = c.Debug
	}
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= debug {
		log.Printf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}
