package main

import (
	"flag"
	"log"
)

func main() {
	di := flag.String("di", "manual", "dependency injection strategy: manual | dig")
	flag.Parse()

	switch *di {
	case "manual":
		startManual()
	case "dig":
		startWithDig()
	default:
		log.Fatalf("unknown -di strategy %q", *di)
	}
}
