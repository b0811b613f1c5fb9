package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/tightlines/internal/client/app"
	"github.com/dmitrijs2005/tightlines/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a, err := app.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	a.Run(ctx)

}
