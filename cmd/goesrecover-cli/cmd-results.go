package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/lanot/goesrecover/modules/processor"
	"github.com/lanot/goesrecover/modules/registry"
)

type resultsCmd struct {
	ConsultaID string `arg:"" help:"consulta id to fetch"`

	Files bool `help:"also list every retrieved file per source"`
	Raw   bool `help:"dump the stored record as json"`
}

func (cmd *resultsCmd) Run(opts *globalOptions) error {
	rec, err := newClient(opts).QueryRecord(cmd.ConsultaID)
	if err != nil {
		return err
	}

	if cmd.Raw {
		b, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	if rec.State == registry.StateError {
		return fmt.Errorf("consulta %s terminó en error: %s", rec.ID, rec.Message)
	}
	if len(rec.Results) == 0 {
		return fmt.Errorf("consulta %s aún no tiene resultados (estado %s)", rec.ID, rec.State)
	}

	report := &processor.Report{}
	if err := json.Unmarshal(rec.Results, report); err != nil {
		return fmt.Errorf("stored results are not a report: %w", err)
	}

	fmt.Println("consulta  : ", rec.ID)
	fmt.Println("estado    : ", rec.State)
	fmt.Println("destino   : ", report.DestPath)
	fmt.Println("archivos  : ", fmt.Sprintf("%s (lustre %s, s3 %s)",
		humanize.Comma(int64(report.TotalFiles)),
		humanize.Comma(int64(report.Sources.Lustre.Total)),
		humanize.Comma(int64(report.Sources.S3.Total))))
	fmt.Println("tamaño    : ", humanMB(report.TotalMB))
	fmt.Println("duración  : ", report.Duration)
	fmt.Println("procesado : ", report.ProcessedAt)
	if report.RecoveryQuery != nil {
		fmt.Println("recuperación pendiente: sí")
	}

	if len(report.CountByProduct) > 0 {
		fmt.Println()
		renderProductTable(report)
	}

	if cmd.Files {
		printFiles("lustre", report.Sources.Lustre)
		printFiles("s3", report.Sources.S3)
	}

	return nil
}

func renderProductTable(report *processor.Report) {
	products := make([]string, 0, len(report.CountByProduct))
	for p := range report.CountByProduct {
		products = append(products, p)
	}
	sort.Strings(products)

	out := make([][]string, 0, len(products))
	total, totalS3 := 0, 0
	for _, p := range products {
		out = append(out, []string{
			p,
			strconv.Itoa(report.CountByProduct[p]),
			strconv.Itoa(report.CountByProductS3[p]),
		})
		total += report.CountByProduct[p]
		totalS3 += report.CountByProductS3[p]
	}

	w := tablewriter.NewWriter(os.Stdout)
	w.SetHeader([]string{"producto", "archivos", "desde s3"})
	w.SetFooter([]string{"", strconv.Itoa(total), strconv.Itoa(totalS3)})
	w.AppendBulk(out)
	w.Render()
}

func printFiles(source string, files processor.SourceFiles) {
	if files.Total == 0 {
		return
	}

	fmt.Println()
	fmt.Printf("%s (%d):\n", source, files.Total)
	for _, f := range files.Files {
		fmt.Println("  ", f)
	}
	if len(files.Files) < files.Total {
		fmt.Printf("  ... y %d más\n", files.Total-len(files.Files))
	}
}
