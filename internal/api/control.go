package api

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apipb "github.com/tcfw/tributary/api"
	"github.com/tcfw/tributary/pkg/tributary"
	"github.com/tcfw/tributary/pkg/tx"
)

func init() {
	reg = append(reg, &controlApi{})
}

type controlApi struct {
	BaseHandler
	apipb.UnimplementedControlServer
}

func (c *controlApi) Desc() *grpc.ServiceDesc {
	return &apipb.Control_ServiceDesc
}

func (c *controlApi) Status(ctx context.Context, _ *apipb.StatusRequest) (*apipb.StatusResponse, error) {
	t := c.a.n.Tributary()
	genesis, tip := t.Genesis(), t.Tip()

	return &apipb.StatusResponse{
		Genesis:     hex.EncodeToString(genesis[:]),
		BlockNumber: t.BlockNumber(),
		Tip:         hex.EncodeToString(tip[:]),
		MempoolSize: t.Blockchain().MempoolSize(),
		Validators:  len(t.Validators().Keys()),
		Peers:       len(c.a.n.Peers()),
	}, nil
}

func (c *controlApi) SubmitTransaction(ctx context.Context, req *apipb.TransactionRequest) (*apipb.SubmitResponse, error) {
	t, err := tributary.DecodeTx(req.Tx, nil)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding transaction: %s", err)
	}

	added, err := c.a.n.Tributary().AddTransaction(t)
	if err != nil {
		if tx.IsTransactionError(err) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	h := t.Hash()
	return &apipb.SubmitResponse{Added: added, Hash: hex.EncodeToString(h[:])}, nil
}

func (c *controlApi) ProvideTransaction(ctx context.Context, req *apipb.TransactionRequest) (*apipb.ProvideResponse, error) {
	t, err := tributary.DecodeTx(req.Tx, nil)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding transaction: %s", err)
	}

	if err := c.a.n.Tributary().ProvideTransaction(t); err != nil {
		if errors.Is(err, tributary.ErrNotProvided) || errors.Is(err, tributary.ErrLocalMismatchesOnChain) {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}

	h := t.Hash()
	return &apipb.ProvideResponse{Hash: hex.EncodeToString(h[:])}, nil
}
