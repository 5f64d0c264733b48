/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type _App struct {
	cfgFile string
	config  *viper.Viper
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	app := &_App{config: viper.New()}
	root := &cobra.Command{
		Use:   "loopfrag",
		Short: "Loop peeling and partial unrolling on sea-of-nodes graphs",
		Long: `loopfrag builds the graph of a YAML loop kernel, peels or unrolls its loop,
and compares the interpreter results of the transformed graph with the
original one.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}

	/* flags shared by every command */
	flags := root.PersistentFlags()
	flags.StringVar(&app.cfgFile, "config", "", "config file (default is .loopfrag.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.Bool("verify", true, "verify the graph after every transformation")
	flags.String("dot", "", "write the resulting graph in DOT format to this file (- for stdout)")
	flags.StringToInt64("run", nil, "run the graphs with these parameters, e.g. n=10,len_a=10")

	/* sub-commands */
	root.AddCommand(
		newPeelCmd(app),
		newUnrollCmd(app),
		newDumpCmd(app),
	)
	return root
}

func (self *_App) init(cmd *cobra.Command) error {
	v := self.config
	if self.cfgFile != "" {
		v.SetConfigFile(self.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".loopfrag")
	}

	/* LOOPFRAG_MAX_UNROLL_FACTOR and friends */
	v.SetEnvPrefix("LOOPFRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	/* flags override the environment and the config file */
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	/* a missing default config file is not an error */
	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", v.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return err
	}

	/* initialize the logger */
	self.logger = initLogger(v.GetBool("verbose"))
	return nil
}

func initLogger(verbose bool) *zap.Logger {
	var logger *zap.Logger
	var err error

	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return zap.NewNop()
	}

	return logger
}
