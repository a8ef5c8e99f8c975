package types

// Method is a closed enumeration over the liteserver capability's callable
// surface (§6). Using a sum type instead of dynamic dispatch-by-name means
// the worker's task loop is an exhaustive switch, not reflection.
type Method int

const (
	MethodGetMasterchainInfo Method = iota
	MethodGetMasterchainBlockSignatures
	MethodGetShardBlockProof
	MethodLookupBlock
	MethodGetShards
	MethodGetBlockHeader
	MethodGetBlockTransactions
	MethodGetBlockTransactionsExt
	MethodRawGetBlockTransactions
	MethodRawGetAccountState
	MethodGenericGetAccountState
	MethodRawGetTransactions
	MethodGetTransactions
	MethodRawRunMethod
	MethodRawSendMessage
	MethodRawSendMessageReturnHash
	MethodRawCreateQuery
	MethodRawSendQuery
	MethodRawCreateAndSendQuery
	MethodRawCreateAndSendMessage
	MethodRawEstimateFees
	MethodGetConfigParam
	MethodGetTokenData
	MethodTryLocateTxByIncomingMessage
	MethodTryLocateTxByOutcomingMessage
)

var methodNames = map[Method]string{
	MethodGetMasterchainInfo:            "get_masterchain_info",
	MethodGetMasterchainBlockSignatures: "get_masterchain_block_signatures",
	MethodGetShardBlockProof:            "get_shard_block_proof",
	MethodLookupBlock:                   "lookup_block",
	MethodGetShards:                     "get_shards",
	MethodGetBlockHeader:                "get_block_header",
	MethodGetBlockTransactions:          "get_block_transactions",
	MethodGetBlockTransactionsExt:       "get_block_transactions_ext",
	MethodRawGetBlockTransactions:       "raw_get_block_transactions",
	MethodRawGetAccountState:            "raw_get_account_state",
	MethodGenericGetAccountState:        "generic_get_account_state",
	MethodRawGetTransactions:            "raw_get_transactions",
	MethodGetTransactions:               "get_transactions",
	MethodRawRunMethod:                  "raw_run_method",
	MethodRawSendMessage:                "raw_send_message",
	MethodRawSendMessageReturnHash:      "raw_send_message_return_hash",
	MethodRawCreateQuery:                "_raw_create_query",
	MethodRawSendQuery:                  "_raw_send_query",
	MethodRawCreateAndSendQuery:         "raw_create_and_send_query",
	MethodRawCreateAndSendMessage:       "raw_create_and_send_message",
	MethodRawEstimateFees:               "raw_estimate_fees",
	MethodGetConfigParam:                "get_config_param",
	MethodGetTokenData:                  "get_token_data",
	MethodTryLocateTxByIncomingMessage:  "try_locate_tx_by_incoming_message",
	MethodTryLocateTxByOutcomingMessage: "try_locate_tx_by_outcoming_message",
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "unknown"
}
