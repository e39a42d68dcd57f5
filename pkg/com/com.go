package com

import "github.com/rostrumapp/rostrum/pkg/network"

// NetClient is a connected remote entity tracked in a registry.
type NetClient interface {
	Disconnect()
	Id() network.Uid
}

// NetMap is a registry of net clients keyed by their connection ids.
type NetMap[T NetClient] struct{ Map[network.Uid, T] }

func NewNetMap[T NetClient]() NetMap[T] {
	return NetMap[T]{Map: Map[network.Uid, T]{m: make(map[network.Uid]T, 10)}}
}

func (m *NetMap[T]) Add(client T)              { m.Put(client.Id(), client) }
func (m *NetMap[T]) Remove(client T)           { m.RemoveByKey(client.Id()) }
func (m *NetMap[T]) RemoveDisconnect(client T) { client.Disconnect(); m.Remove(client) }
