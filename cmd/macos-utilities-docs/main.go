package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra/doc"
	"github.com/spf13/pflag"

	"github.com/prowarehouse/macos-utilities/internal/build"
	"github.com/prowarehouse/macos-utilities/internal/cmd"
)

func main() {
	var (
		outdir string
		man    bool
	)
	pflag.StringVarP(&outdir, "outdir", "o", "./docs", "directory the docs are written to")
	pflag.BoolVar(&man, "man", false, "generate man pages instead of markdown")
	pflag.Parse()

	log := logrus.WithFields(logrus.Fields{"outdir": outdir, "man": man})
	log.Info("generating docs")

	if err := os.MkdirAll(outdir, 0755); err != nil {
		log.WithError(err).Fatal("cannot create output directory")
	}

	root := cmd.MainCommand()
	root.DisableAutoGenTag = true

	var err error
	if man {
		err = doc.GenManTree(root, &doc.GenManHeader{
			Title:   "MACOS-UTILITIES",
			Section: "8",
			Source:  "macos-utilities " + build.Version,
		}, outdir)
	} else {
		err = doc.GenMarkdownTree(root, outdir)
	}
	if err != nil {
		log.WithError(err).Fatal("cannot generate docs")
	}

	log.Info("generated docs")
}
