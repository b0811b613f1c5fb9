package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/tightlines/internal/gateway"
	"github.com/dmitrijs2005/tightlines/internal/gateway/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := gateway.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
