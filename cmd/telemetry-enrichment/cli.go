// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagInit, flagNoServer, flagNoConsumer, flagLogDateTime bool
	flagConfigFile, flagLogLevel                            string
)

func cliInit() {
	flag.BoolVar(&flagInit, "init", false, "Setup var directory, config.json and .env, then exit")
	flag.BoolVar(&flagNoServer, "no-server", false, "Do not start the http server, only run the ingest consumer loop and background jobs")
	flag.BoolVar(&flagNoConsumer, "no-consumer", false, "Do not run the ingest consumer loop, only start the http server")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Specify alternative path to `config.json`")
	flag.StringVar(&flagLogLevel, "loglevel", "warn", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.Parse()
}
