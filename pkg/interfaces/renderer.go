package interfaces

// ExpressionRenderer turns an arithmetic statement like "3 + 4 = 7"
// into an opaque visual payload for the client. The quiz never inspects
// the result; only the raw statement carries the truth value.
type ExpressionRenderer interface {
	Render(statement string) string
}
