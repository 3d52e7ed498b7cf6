package main

import (
	"github.com/tapo-exporter/cmd/agent"
)

func main() {
	agent.Execute()
}
