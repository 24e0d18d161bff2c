package api

type StatusRequest struct{}

type StatusResponse struct {
	Genesis     string `msgpack:"genesis" json:"genesis"`
	BlockNumber uint64 `msgpack:"block_number" json:"block_number"`
	Tip         string `msgpack:"tip" json:"tip"`
	MempoolSize int    `msgpack:"mempool_size" json:"mempool_size"`
	Validators  int    `msgpack:"validators" json:"validators"`
	Peers       int    `msgpack:"peers" json:"peers"`
}

// TransactionRequest carries a transaction as gossiped, tag byte included.
type TransactionRequest struct {
	Tx []byte `msgpack:"tx" json:"tx"`
}

type SubmitResponse struct {
	Added bool   `msgpack:"added" json:"added"`
	Hash  string `msgpack:"hash" json:"hash"`
}

type ProvideResponse struct {
	Hash string `msgpack:"hash" json:"hash"`
}
