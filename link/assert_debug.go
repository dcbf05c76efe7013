//go:build debug

package link

func assert(ok bool, msg string) {
	if !ok {
		panic("link: " + msg)
	}
}
