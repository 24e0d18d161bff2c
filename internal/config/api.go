package config

import "github.com/spf13/viper"

type API struct {
	Addr string
}

type Metrics struct {
	// Addr is empty when metrics aren't served
	Addr string
}

const (
	Cfg_api_addr     = "api.addr"
	Cfg_metrics_addr = "metrics.addr"
)

func init() {
	viper.SetDefault(Cfg_api_addr, "127.0.0.1:8787")
	viper.SetDefault(Cfg_metrics_addr, "")
}

func buildAPIConfig() *API {
	return &API{Addr: viper.GetString(Cfg_api_addr)}
}

func buildMetricsConfig() *Metrics {
	return &Metrics{Addr: viper.GetString(Cfg_metrics_addr)}
}
