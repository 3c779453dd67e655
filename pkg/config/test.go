package config

func loadTestConfig(cfg *Config) {
	cfg.DatabaseFilePath = ":memory:"
	cfg.DataDirectory = "./tmp/test-data"
	cfg.ServerHost = "127.0.0.1"
	cfg.ServerPort = 0
}
