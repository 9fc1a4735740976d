package config

import "github.com/alecthomas/kong"

type Cli struct {
	Version kong.VersionFlag

	LogLevel   string `kong:"name=log-level,env=LOG_LEVEL,default=info,help='Set log level.'"`
	LogJSON    bool   `kong:"name=log-json,env=LOG_JSON,default=false,help='Enable JSON logging output.'"`
	LogCaller  bool   `kong:"name=log-caller,env=LOG_CALLER,default=false,help='Add file:line of the caller to log output.'"`
	LogNoColor bool   `kong:"name=log-nocolor,env=LOG_NOCOLOR,default=false,help='Disable colorized output.'"`

	Budget Size `kong:"name=budget,env=UNARC_BUDGET,help='Maximum bytes read from an archive, decompressed bytes included. (eg. 512MiB)'"`

	Ls      LsCmd      `kong:"cmd,name=ls,help='List archive entries.'"`
	Cat     CatCmd     `kong:"cmd,name=cat,help='Write the payload of an archive member to stdout.'"`
	Detect  DetectCmd  `kong:"cmd,name=detect,help='Print the compression and container format of archives.'"`
	Extract ExtractCmd `kong:"cmd,name=x,help='Extract archive contents in a local folder.'"`
}

type LsCmd struct {
	Digest   bool     `kong:"name=digest,default=false,help='Print the digest of each regular file.'"`
	Includes []string `kong:"name=include,help='Include a subset of files/dirs from the archive.'"`
	Archives []string `kong:"arg,required,name=archive,type=existingfile,help='Archive files.'"`
}

type CatCmd struct {
	Archive string `kong:"arg,required,name=archive,type=existingfile,help='Archive file.'"`
	Member  string `kong:"arg,required,name=member,help='Path of the member in the archive. (eg. etc/hosts)'"`
}

type DetectCmd struct {
	Archives []string `kong:"arg,required,name=archive,type=existingfile,help='Archive files.'"`
}

type ExtractCmd struct {
	Includes []string `kong:"name=include,help='Include a subset of files/dirs from the archive.'"`
	RmDist   bool     `kong:"name=rm-dist,default=false,help='Removes dist folder.'"`

	Archive string `kong:"arg,required,name=archive,type=existingfile,help='Archive file.'"`
	Dist    string `kong:"arg,required,name=dist,type=path,help='Dist folder. (eg. ./dist)'"`
}
