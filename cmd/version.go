package cmd

// Version is the typeprobe release version, overridable at link time with
// -ldflags "-X github.com/SumedhJ28/typespeed-ai-anticheat/cmd.Version=...".
var Version = "0.1.0"
