//go:build !race

package admingate

func passwordHashCost() int {
	return 14
}
