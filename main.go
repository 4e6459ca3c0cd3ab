package main

import (
	"log"

	"github.com/area/diffsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
