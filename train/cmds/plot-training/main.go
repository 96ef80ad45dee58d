package main

import (
	"fmt"
	"log"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/montanaflynn/stats"
	chart "github.com/wcharczuk/go-chart"

	"github.com/retortml/retort/train"
)

func noErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	args := struct {
		Records string `arg:"positional" default:"ckpt/train.json"`
		Out     string `arg:"--out" default:"training-curves.png"`
	}{}
	arg.MustParse(&args)

	records, err := train.ReadRecords(args.Records)
	noErr(err)
	if len(records) == 0 {
		log.Fatal(fmt.Errorf("no records found in %s", args.Records))
	}

	epochs := make([]float64, 0, len(records))
	curves := map[string][]float64{
		"generator train":     nil,
		"generator valid":     nil,
		"discriminator train": nil,
		"discriminator valid": nil,
	}
	for _, r := range records {
		epochs = append(epochs, float64(r.Epoch))
		curves["generator train"] = append(curves["generator train"], r.GenTrainLoss)
		curves["generator valid"] = append(curves["generator valid"], r.GenValidLoss)
		curves["discriminator train"] = append(curves["discriminator train"], r.DscTrainLoss)
		curves["discriminator valid"] = append(curves["discriminator valid"], r.DscValidLoss)
	}

	var series []chart.Series
	i := 0
	for _, name := range []string{"generator train", "generator valid", "discriminator train", "discriminator valid"} {
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: epochs,
			YValues: curves[name],
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.GetAlternateColor(i),
			},
		})
		i++
	}

	graph := chart.Chart{
		Title:      "Adversarial Training Losses",
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      "Epoch",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      "Loss",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	f, err := os.Create(args.Out)
	noErr(err)
	noErr(graph.Render(chart.PNG, f))
	noErr(f.Close())
	log.Printf("wrote %s", args.Out)

	for _, name := range []string{"generator valid", "discriminator valid"} {
		vals := curves[name]
		min, _ := stats.Min(vals)
		mean, _ := stats.Mean(vals)
		fmt.Printf("%s loss:\n", name)
		fmt.Printf("  Min: %.3f\n", min)
		fmt.Printf("  Mean: %.3f\n", mean)
		fmt.Printf("  Final: %.3f\n", vals[len(vals)-1])
	}
}
