package ws

type Config struct {
	Addr    string
	Name    string
	SendBuf int
}

func DefaultConfig() Config {
	return Config{
		Addr:    "127.0.0.1:8765",
		Name:    "padscope",
		SendBuf: 256,
	}
}
