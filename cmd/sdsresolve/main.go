package main

import (
	"log"

	"github.com/MrSnakeDoc/sdsresolve/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ sdsresolve failed to initialize: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ sdsresolve failed: %v", err)
	}
}
