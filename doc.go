// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package a2a provides the protocol value types for the Agent2Agent (A2A)
// message-exchange convention: Messages composed of typed Parts, Tasks with
// their lifecycle states, AgentCards, StreamEvents for incremental agent
// output, and the error taxonomy shared by client and server.
//
// The server-side task engine lives in package server; the wire client in
// package client.
package a2a
