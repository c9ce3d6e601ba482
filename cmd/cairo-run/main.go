// Command cairo-run loads a compiled Cairo program artifact and executes
// it against a chosen layout, the way the reference cairo-run tool does.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cairo-run",
		Short:         "A tool to run Cairo programs.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd())
	return root
}

func configureLogger(format string) (*logrus.Logger, error) {
	log := logrus.New()
	switch format {
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errUnknownLogFormat(format)
	}
	return log, nil
}

type errUnknownLogFormat string

func (e errUnknownLogFormat) Error() string {
	return "unknown --log-format " + string(e)
}
