package main

import (
	"log"

	"ticket-issuer/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
