// ABOUTME: Redis key and channel helpers for the board store.
// ABOUTME: Every key is namespaced so several boards can share one Redis server.
package store

import "fmt"

// Key pattern: kanbansync:{namespace}:{entity}[:{id}]

// CardKey is the hash holding one card.
func CardKey(namespace, cardID string) string {
	return fmt.Sprintf("kanbansync:%s:card:%s", namespace, cardID)
}

// LaneKey is the list of card ids in one lane, in board order.
func LaneKey(namespace, lane string) string {
	return fmt.Sprintf("kanbansync:%s:lane:%s", namespace, lane)
}

// LanesKey is the set of every known lane name.
func LanesKey(namespace string) string {
	return fmt.Sprintf("kanbansync:%s:lanes", namespace)
}

// OrderKey is the list holding the active lane order.
func OrderKey(namespace string) string {
	return fmt.Sprintf("kanbansync:%s:order", namespace)
}

// ChangesChannel carries a ChangeNotice after every write.
func ChangesChannel(namespace string) string {
	return fmt.Sprintf("kanbansync:%s:changes", namespace)
}
