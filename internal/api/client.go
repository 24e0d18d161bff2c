package api

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	apipb "github.com/tcfw/tributary/api"
	"github.com/tcfw/tributary/internal/config"
)

type Client struct {
	cc *grpc.ClientConn
}

func (a *Client) Close() error {
	return a.cc.Close()
}

func (a *Client) Control() apipb.ControlClient {
	return apipb.NewControlClient(a.cc)
}

func NewClient(opts ...grpc.DialOption) (*Client, error) {
	return Dial(viper.GetString(config.Cfg_api_addr), opts...)
}

func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(msgpackCodec{})),
	}, opts...)

	cc, err := grpc.Dial(addr, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to daemon")
	}

	return &Client{cc: cc}, nil
}
