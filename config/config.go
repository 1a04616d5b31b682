// Package config holds the plain configuration struct every other
// package is constructed from. It owns no file-format, flag, or env-var
// parsing; callers are expected to populate a Config however their own
// outer layer sees fit and pass it in, the way istanbul.DefaultConfig is
// a plain package-level value other constructors start from.
package config

import "time"

// Config holds the recognized configuration options for the eth server,
// downloader, and IBFT-legacy proposer glue.
type Config struct {
	NetworkID             uint64
	MaxItemsPerResponse   uint16
	DownloaderParallelism uint16
	RequestTimeoutMs      uint32
	MaxRetries            uint16
	FastSync              bool

	// DownloaderRequestsPerSecond and DownloaderBurst bound how fast the
	// downloader may issue GET_BLOCK_HEADERS requests across all of its
	// in-flight tasks, regardless of how many peers or retries are active.
	DownloaderRequestsPerSecond float64
	DownloaderBurst             int

	IBFTEpochLength      uint64
	IBFTRequestTimeoutMs uint32
}

// Defaults returns a Config with every optional field set to its
// documented default, leaving NetworkID (a required field with no sane
// default) zero.
func Defaults() *Config {
	return &Config{
		MaxItemsPerResponse:         192,
		DownloaderParallelism:       4,
		RequestTimeoutMs:            8000,
		MaxRetries:                  3,
		DownloaderRequestsPerSecond: 20,
		DownloaderBurst:             5,
	}
}

// RequestTimeout is a convenience accessor turning the millisecond field
// into a time.Duration for callers building a context.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// IBFTRequestTimeout is the equivalent accessor for the IBFT-specific
// request timeout used by the consensus core's own round-change logic.
func (c *Config) IBFTRequestTimeout() time.Duration {
	return time.Duration(c.IBFTRequestTimeoutMs) * time.Millisecond
}
