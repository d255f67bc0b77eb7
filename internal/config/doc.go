// Package config loads sqmean.json, the optional configuration file shared
// by the server and client commands.
//
// Every field has a default, so the file may be absent or partial.
// Command-line flags override whatever the file sets.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "port": 64000,
//	    "host": "0.0.0.0",
//	    "tick": "1ms",
//	    "errorPolicy": "fail-open",
//	    "retentionTTL": "0s"
//	  },
//	  "dump": {
//	    "interval": "5s",
//	    "store": "file",
//	    "dir": ".",
//	    "format": "concat",
//	    "s3": {"bucket": "dumps", "prefix": "sqmean/", "region": "eu-west-1"},
//	    "sql": {"driver": "sqlite3", "dsn": "dumps.db", "table": "sqmean_dumps"}
//	  },
//	  "client": {"host": "127.0.0.1", "port": 64000, "attempts": 3, "pause": "1ms"},
//	  "admin": {"addr": ":9090"},
//	  "log": {"level": "info", "format": "text", "file": "server.log"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Port:", cfg.Server.Port)
package config
