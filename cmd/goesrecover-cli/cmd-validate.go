package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

type validateCmd struct {
	File string `arg:"" optional:"" type:"path" help:"request json; - or empty reads stdin"`
}

func (cmd *validateCmd) Run(opts *globalOptions) error {
	req, err := readRequest(cmd.File)
	if err != nil {
		return err
	}

	resp, err := newClient(opts).ValidateQuery(req)
	if err != nil {
		return err
	}

	fmt.Println(resp.Message)
	fmt.Println("archivos estimados : ", humanize.Comma(int64(resp.FileCount)))
	fmt.Println("tamaño estimado    : ", humanMB(resp.TotalSizeMB))
	fmt.Println("promedio/archivo   : ", humanMB(resp.AverageFileMB))
	return nil
}
