package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/airtraffic/cmd/atc-tower/app"
)

func main() {
	app.NewApp().Run()
}
