package entity

// Subscription identifies one market-data stream. Implementations must be
// comparable value types so equal descriptors select the same stream.
type Subscription interface {
	Exchange() ExchangeName
	Channel() string
	InstrumentID() string
}

// ResponseOfSub is a parsed market-data update. ResponseFor reports whether
// the update satisfies the given subscription.
type ResponseOfSub interface {
	Exchange() ExchangeName
	ResponseFor(sub Subscription) bool
}
