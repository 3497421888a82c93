package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tolelom/hashgraph/consensus"
	"github.com/tolelom/hashgraph/crypto"
	"github.com/tolelom/hashgraph/index"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	en  *consensus.Engine
	idx *index.Index
}

// NewHandler creates an RPC Handler.
func NewHandler(en *consensus.Engine, idx *index.Index) *Handler {
	return &Handler{en: en, idx: idx}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getHead":
		return h.getHead(req)

	case "getEvent":
		return h.getEvent(req)

	case "getRound":
		return h.getRound(req)

	case "getWitnesses":
		return h.getWitnesses(req)

	case "getFame":
		return h.getFame(req)

	case "getConsensusOrder":
		return h.getConsensusOrder(req)

	case "getTxStatus":
		return h.getTxStatus(req)

	case "getStats":
		return h.getStats(req)

	case "submitTransaction":
		return h.submitTransaction(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getHead(req Request) Response {
	var params struct {
		Creator string `json:"creator"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	creator := params.Creator
	if creator == "" {
		creator = h.en.PublicKey()
	}
	head, ok := h.en.Graph().Head(creator)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "no head for creator "+creator)
	}
	return okResponse(req.ID, map[string]string{"creator": creator, "head": head})
}

func (h *Handler) getEvent(req Request) Response {
	var params struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Hash == "" {
		return errResponse(req.ID, CodeInvalidParams, "hash is required")
	}
	e, ok := h.en.Graph().Get(params.Hash)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "unknown event "+params.Hash)
	}
	return okResponse(req.ID, e)
}

func (h *Handler) getRound(req Request) Response {
	var params struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Hash == "" {
		return errResponse(req.ID, CodeInvalidParams, "hash is required")
	}
	round, ok := h.en.RoundTable().Get(params.Hash)
	if !ok {
		return errResponse(req.ID, CodeInternalError, "no round assigned for "+params.Hash)
	}
	return okResponse(req.ID, map[string]int{"round": round})
}

func (h *Handler) getWitnesses(req Request) Response {
	var params struct {
		Round int `json:"round"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	return okResponse(req.ID, h.en.WitnessTable().Witnesses(params.Round))
}

func (h *Handler) getFame(req Request) Response {
	var params struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Hash == "" {
		return errResponse(req.ID, CodeInvalidParams, "hash is required")
	}
	famous, decided := h.en.FameTable().Get(params.Hash)
	return okResponse(req.ID, map[string]any{"decided": decided, "famous": famous})
}

func (h *Handler) getConsensusOrder(req Request) Response {
	var params struct {
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	order := h.en.OrderState().Order()
	if params.Offset < 0 || params.Offset > len(order) {
		return errResponse(req.ID, CodeInvalidParams, "offset out of range")
	}
	end := len(order)
	if params.Limit > 0 && params.Offset+params.Limit < end {
		end = params.Offset + params.Limit
	}
	return okResponse(req.ID, order[params.Offset:end])
}

func (h *Handler) getTxStatus(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	rec, found, err := h.idx.GetByTxID(params.TxID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if !found {
		return okResponse(req.ID, map[string]any{"finalized": false})
	}
	return okResponse(req.ID, map[string]any{"finalized": true, "record": rec})
}

func (h *Handler) getStats(req Request) Response {
	return okResponse(req.ID, map[string]any{
		"participant_count": h.en.Graph().N(),
		"event_count":       h.en.Graph().Len(),
		"max_round":         h.en.RoundTable().MaxRound(),
		"order_length":      h.en.OrderState().Len(),
		"self_public_key":   h.en.PublicKey(),
	})
}

func (h *Handler) submitTransaction(req Request) Response {
	var params struct {
		Data string `json:"data"` // hex-encoded payload
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	tx, err := hex.DecodeString(params.Data)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "data must be hex-encoded: "+err.Error())
	}
	h.en.SubmitTransaction(tx)
	return okResponse(req.ID, map[string]string{"tx_id": crypto.Hash(tx)})
}
