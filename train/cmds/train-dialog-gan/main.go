package main

import (
	"log"

	arg "github.com/alexflint/go-arg"

	"github.com/retortml/retort/dialog"
	"github.com/retortml/retort/model/reference"
	"github.com/retortml/retort/train"
)

func main() {
	args := struct {
		Mode      string `arg:"--mode" help:"operating regime: train, pretrain, or test" default:"train"`
		Device    string `arg:"--device" default:"cpu"`
		Precision string `arg:"--precision" help:"fp16 or fp32" default:"fp16"`

		TrainData string `arg:"--train-data" default:"data/train.json"`
		ValidData string `arg:"--valid-data" default:"data/valid.json"`

		BatchSize  int     `arg:"--batch-size" default:"16"`
		MaxLen     int     `arg:"--max-len" help:"generated response length bound" default:"128"`
		Epochs     int     `arg:"--epochs" default:"10"`
		Clip       float64 `arg:"--clip" help:"gradient norm ceiling" default:"1"`
		AccumSteps int     `arg:"--accum-steps" help:"batches per optimizer step" default:"4"`
		LR         float64 `arg:"--lr" default:"0.0001"`

		EarlyStop bool `arg:"--early-stop" default:"true"`
		Patience  int  `arg:"--patience" default:"3"`

		GenCkpt    string `arg:"--gen-ckpt" default:"ckpt/generator.gob"`
		DscCkpt    string `arg:"--dsc-ckpt" default:"ckpt/discriminator.gob"`
		RecordPath string `arg:"--record" default:"ckpt/train.json"`

		FeatureDim uint64 `arg:"--feature-dim" help:"discriminator hashed feature dimension" default:"65536"`
		Seed       int64  `arg:"--seed" default:"0"`
	}{}
	arg.MustParse(&args)

	cfg := train.Config{
		Mode:       args.Mode,
		Device:     args.Device,
		Precision:  args.Precision,
		MaxLen:     args.MaxLen,
		Epochs:     args.Epochs,
		ClipNorm:   args.Clip,
		AccumSteps: args.AccumSteps,
		EarlyStop:  args.EarlyStop,
		Patience:   args.Patience,
		GenCkpt:    args.GenCkpt,
		DscCkpt:    args.DscCkpt,
		RecordPath: args.RecordPath,
		LR:         args.LR,
		Seed:       args.Seed,
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalln(err)
	}

	trainExamples, err := dialog.LoadExamples(args.TrainData)
	if err != nil {
		log.Fatalln(err)
	}
	validExamples, err := dialog.LoadExamples(args.ValidData)
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("loaded %d training and %d validation examples", len(trainExamples), len(validExamples))

	// shuffling only in plain training mode
	trainLoader, err := dialog.NewLoader(trainExamples, dialog.LoaderOptions{
		BatchSize: args.BatchSize,
		Shuffle:   cfg.Mode == train.ModeTrain,
		Prefetch:  2,
		Seed:      args.Seed,
	})
	if err != nil {
		log.Fatalln(err)
	}
	validLoader, err := dialog.NewLoader(validExamples, dialog.LoaderOptions{
		BatchSize: args.BatchSize,
		Prefetch:  2,
		Seed:      args.Seed,
	})
	if err != nil {
		log.Fatalln(err)
	}

	gen := reference.NewGenerator(args.LR, args.Seed)
	gen.Fit(trainExamples)
	dsc := reference.NewDiscriminator(args.FeatureDim, args.LR)

	session, err := train.NewSession(cfg, gen, dsc, trainLoader, validLoader)
	if err != nil {
		log.Fatalln(err)
	}
	session.Progress = true

	state, err := session.Run()
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("session finished after %d epochs: %s", len(session.Records()), state)
}
