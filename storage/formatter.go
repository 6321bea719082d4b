package storage

// PageFormatter initializes the contents of a freshly allocated page. PinNew
// callers supply one so the pool never hands out a page of undefined bytes.
type PageFormatter interface {
	// Format writes the initial contents of a new page into buf, which is
	// exactly common.PageSize bytes.
	Format(buf []byte)
}

// ZeroFormatter is the trivial PageFormatter: it leaves the page as all
// zeroes, which is what a freshly appended block already contains.
type ZeroFormatter struct{}

func (ZeroFormatter) Format(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
