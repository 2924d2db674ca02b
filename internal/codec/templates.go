package codec

// Template ids used for routing. Requests are even, their responses odd,
// pushed updates live in the x50 ranges.
const (
	// Session
	RequestLogin       int32 = 10
	ResponseLogin      int32 = 11
	RequestLogout      int32 = 12
	ResponseLogout     int32 = 13
	RequestSystemInfo  int32 = 16
	ResponseSystemInfo int32 = 17
	RequestHeartbeat   int32 = 18
	ResponseHeartbeat  int32 = 19
	Reject             int32 = 75
	ForcedLogout       int32 = 77

	// Market data
	RequestMarketDataUpdate  int32 = 100
	ResponseMarketDataUpdate int32 = 101
	RequestSearchSymbols     int32 = 109
	ResponseSearchSymbols    int32 = 110
	RequestFrontMonth        int32 = 113
	ResponseFrontMonth       int32 = 114
	LastTrade                int32 = 150
	BestBidOffer             int32 = 151
	RequestListExchanges     int32 = 342
	ResponseListExchanges    int32 = 343

	// History
	RequestTimeBarUpdate  int32 = 200
	ResponseTimeBarUpdate int32 = 201
	RequestTimeBarReplay  int32 = 202
	ResponseTimeBarReplay int32 = 203
	RequestTickBarReplay  int32 = 206
	ResponseTickBarReplay int32 = 207
	TimeBar               int32 = 250

	// Orders
	RequestLoginInfo          int32 = 300
	ResponseLoginInfo         int32 = 301
	RequestAccountList        int32 = 302
	ResponseAccountList       int32 = 303
	RequestOrderUpdates       int32 = 308
	ResponseOrderUpdates      int32 = 309
	RequestTradeRoutes        int32 = 310
	ResponseTradeRoutes       int32 = 311
	RequestNewOrder           int32 = 312
	ResponseNewOrder          int32 = 313
	RequestModifyOrder        int32 = 314
	ResponseModifyOrder       int32 = 315
	RequestCancelOrder        int32 = 316
	ResponseCancelOrder       int32 = 317
	RequestShowOrders         int32 = 320
	ResponseShowOrders        int32 = 321
	RequestBracketOrder       int32 = 330
	ResponseBracketOrder      int32 = 331
	RequestUpdateTargetLevel  int32 = 332
	ResponseUpdateTargetLevel int32 = 333
	RequestUpdateStopLevel    int32 = 334
	ResponseUpdateStopLevel   int32 = 335
	RequestBracketUpdates     int32 = 336
	ResponseBracketUpdates    int32 = 337
	RequestShowBrackets       int32 = 338
	ResponseShowBrackets      int32 = 339
	RequestShowBracketStops   int32 = 340
	ResponseShowBracketStops  int32 = 341
	RequestCancelAllOrders    int32 = 346
	ResponseCancelAllOrders   int32 = 347
	RithmicOrderNotification  int32 = 351
	ExchangeOrderNotification int32 = 352
	BracketUpdate             int32 = 353
	RequestExitPosition       int32 = 3504
	ResponseExitPosition      int32 = 3505

	// PnL
	RequestPnLUpdates   int32 = 400
	ResponsePnLUpdates  int32 = 401
	RequestPnLSnapshot  int32 = 402
	ResponsePnLSnapshot int32 = 403
	InstrumentPnLUpdate int32 = 450
	AccountPnLUpdate    int32 = 451
)

// Response code values carried in rp_code.
const (
	CodeSuccess = "0"
	CodeNoData  = "7"
)

// Common field names.
const (
	FieldUserMsg         = "user_msg"
	FieldResponseCode    = "rp_code"
	FieldHandlerRespCode = "rq_handler_rp_code"
)

// IsTerminator reports whether the frame ends a response set.
func IsTerminator(f Frame) bool {
	return f.Has(FieldResponseCode)
}

// ResponseCode returns the leading response code and its text, if any.
func ResponseCode(f Frame) (code, text string) {
	codes := f.Strings(FieldResponseCode)
	if len(codes) == 0 {
		return "", ""
	}
	code = codes[0]
	if len(codes) > 1 {
		text = codes[1]
	}
	return code, text
}
