package main

import (
	"fmt"
	"strings"
)

type satellitesCmd struct{}

func (cmd *satellitesCmd) Run(opts *globalOptions) error {
	cat, err := newClient(opts).Satellites()
	if err != nil {
		return err
	}

	fmt.Println("satélites : ", withDefault(cat.Satellites, cat.DefaultSatellite))
	fmt.Println("sensores  : ", withDefault(cat.Sensors, cat.DefaultSensor))
	fmt.Println("niveles   : ", withDefault(cat.Levels, cat.DefaultLevel))
	fmt.Println("dominios  : ", strings.Join(cat.Domains, ", "))
	fmt.Println("productos : ", strings.Join(cat.Products, ", "))
	if len(cat.ProductsS3Only) > 0 {
		fmt.Println("solo s3   : ", strings.Join(cat.ProductsS3Only, ", "))
	}
	fmt.Println("bandas    : ", strings.Join(cat.Bands, ", "))
	return nil
}

func withDefault(values []string, def string) string {
	s := strings.Join(values, ", ")
	if def != "" {
		s += " (default " + def + ")"
	}
	return s
}
