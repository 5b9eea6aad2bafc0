package log

// Config contains the config items for logger.
type Config struct {
	// Stdout is true if the output needs to go to standard out; default is stderr.
	Stdout bool `yaml:"stdout"`
	// Level is the desired log level; see colocated zap_logger.go.
	Level string `yaml:"level"`
	// OutputFile is the path to the log output file.
	OutputFile string `yaml:"outputFile"`
	// Format determines the format of each log file printed to the output.
	// Acceptable values are "json" or "console". The default is "json".
	Format string `yaml:"format"`
}
