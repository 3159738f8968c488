/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/gopcd/comm"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gopcd",
	Short: "Block preconditioned Krylov solvers for incompressible flow",
	Long: `
Solves the channel flow model problem with GMRES, preconditioned by a
block factorization whose Schur complement is approximated by the
pressure convection-diffusion family (PCD, BRM1, BRM2).

gopcd channel -I input.yaml
gopcd scaling -I input.yaml --levels 4`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gopcd.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log solver progress")
	rootCmd.PersistentFlags().IntP("parallel", "p", 0, "parallel degree of matrix-vector products, default is the number of CPUs")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("parallel", rootCmd.PersistentFlags().Lookup("parallel"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".gopcd")
	}
	viper.SetEnvPrefix("gopcd")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

// newContext builds the execution context from the persistent flags
func newContext() (ctx *comm.Context, err error) {
	var (
		logger = zap.NewNop()
		opts   []comm.Option
	)
	if viper.GetBool("verbose") {
		if logger, err = zap.NewDevelopment(); err != nil {
			return
		}
	}
	opts = append(opts, comm.WithLogger(logger))
	if np := viper.GetInt("parallel"); np > 0 {
		opts = append(opts, comm.WithParallelDegree(np))
	}
	ctx = comm.NewContext(opts...)
	return
}
