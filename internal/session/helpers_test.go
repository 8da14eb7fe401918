package session_test

import "github.com/Skotchmaster/restaurant_pos/internal/order"

func orderFilter(table string) order.Filter { return order.Filter{TableID: table} }
