// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package script_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/holoscript/internal/admin"
	"github.com/holomush/holoscript/internal/host"
	"github.com/holomush/holoscript/internal/host/hosttest"
	"github.com/holomush/holoscript/internal/script"
	scriptlua "github.com/holomush/holoscript/internal/script/lua"
)

const chatFilter = `
namespace "filter"

holoscript.permission{ name = "filter.bypass", default = "op", description = "Skip the chat filter" }

holoscript.on("player.chat", "low", function(ev)
  local sender = ev:get("sender")
  if sender == "root" then return end
  ev:set("message", (string.gsub(ev:get("message"), "darn", "****")))
end)

holoscript.command{
  name = "filtered",
  permission = "filter.bypass",
  fn = function(sender) sender:send("filter active") end,
}
`

const greetV1 = `
namespace "greet"
holoscript.command{ name = "hello", fn = function(sender) sender:send("hello v1") end }
`

const greetV2 = `
namespace "greet"
holoscript.command{ name = "hello", fn = function(sender) sender:send("hello v2") end }
holoscript.command{ name = "wave", fn = function(sender) sender:send("*waves*") end }
`

type stack struct {
	dir    string
	server *host.Server
	mgr    *script.Manager
	op     *hosttest.Sender
}

func newStack() *stack {
	dir := GinkgoT().TempDir()
	server := host.NewServer()
	runtime := scriptlua.NewRuntime(scriptlua.WithDispatcher(server.Commands, host.NewConsole(io.Discard)))
	mgr := script.NewManager(dir, runtime, script.HostFor(server), script.WithDataDir(GinkgoT().TempDir()))
	DeferCleanup(func() { mgr.Shutdown(context.Background()) })

	_, err := admin.Register(server.Commands, server.Permissions, mgr)
	Expect(err).NotTo(HaveOccurred())

	return &stack{dir: dir, server: server, mgr: mgr, op: hosttest.NewSender("root", admin.Permission)}
}

func (s *stack) write(name, src string) {
	Expect(os.WriteFile(filepath.Join(s.dir, name), []byte(src), 0o600)).To(Succeed())
}

func (s *stack) run(sender *hosttest.Sender, line string) string {
	Expect(s.server.Commands.Dispatch(context.Background(), sender, line)).To(Succeed())
	return sender.LastMessage()
}

func (s *stack) chat(from, message string) string {
	ev := host.NewCancellableEvent("player.chat", map[string]any{"sender": from, "message": message})
	s.server.Events.Fire(context.Background(), ev)
	got, _ := ev.Field("message")
	return got.(string)
}

var _ = Describe("Script lifecycle", func() {
	var s *stack

	BeforeEach(func() {
		s = newStack()
	})

	Describe("loading through the admin command", func() {
		It("wires listeners, commands and permissions and removes them on unload", func() {
			s.write("filter.lua", chatFilter)

			Expect(s.run(s.op, "/scripts load filter.lua")).To(Equal("Loaded filter.lua (namespace filter)."))
			Expect(s.chat("alice", "darn it")).To(Equal("**** it"))
			Expect(s.chat("root", "darn it")).To(Equal("darn it"))

			perm, ok := s.server.Permissions.Get("filter.bypass")
			Expect(ok).To(BeTrue())
			Expect(perm.Default).To(Equal(host.DefaultOp))

			Expect(s.run(s.op, "/scripts unload filter.lua")).To(Equal("Unloaded filter.lua."))
			Expect(s.chat("alice", "darn it")).To(Equal("darn it"))
			_, ok = s.server.Permissions.Get("filter.bypass")
			Expect(ok).To(BeFalse())
			_, ok = s.server.Commands.Lookup("filtered")
			Expect(ok).To(BeFalse())
		})

		It("keeps the command permission check at the host boundary", func() {
			s.write("filter.lua", chatFilter)
			Expect(s.run(s.op, "/scripts load filter.lua")).To(ContainSubstring("Loaded"))

			cmd, ok := s.server.Commands.Lookup("filtered")
			Expect(ok).To(BeTrue())
			Expect(cmd.Permission()).To(Equal("filter.bypass"))
		})

		It("reloads new code in place", func() {
			s.write("greet.lua", greetV1)
			Expect(s.run(s.op, "/scripts load greet.lua")).To(ContainSubstring("Loaded"))
			Expect(s.run(s.op, "/hello")).To(Equal("hello v1"))

			s.write("greet.lua", greetV2)
			Expect(s.run(s.op, "/scripts reload greet.lua")).To(Equal("Reloaded greet.lua (namespace greet)."))
			Expect(s.run(s.op, "/hello")).To(Equal("hello v2"))
			Expect(s.run(s.op, "/wave")).To(Equal("*waves*"))
		})

		It("leaves no trace of a script that fails to load", func() {
			s.write("greet.lua", greetV1)
			Expect(s.run(s.op, "/scripts load greet.lua")).To(ContainSubstring("Loaded"))
			before := s.server.Commands.KnownCommands()

			s.write("broken.lua", "namespace 'broken'\nholoscript.command{ name = 'oops', fn = function() end }\nerror('boom')\n")
			Expect(s.run(s.op, "/scripts load broken.lua")).To(HavePrefix("Could not load broken.lua: "))
			Expect(s.server.Commands.KnownCommands()).To(Equal(before))
			Expect(s.mgr.List()).To(HaveLen(1))
		})
	})

	Describe("startup and shutdown", func() {
		It("loads every script and shuts them all down", func() {
			s.write("greet.lua", greetV1)
			s.write("filter.lua", chatFilter)
			s.write("readme.txt", "not a script")

			n, err := s.mgr.LoadAll(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
			Expect(s.run(s.op, "/scripts list")).To(Equal("Loaded scripts (2): filter.lua [filter], greet.lua [greet]"))

			s.mgr.Shutdown(context.Background())
			Expect(s.mgr.List()).To(BeEmpty())
			Expect(s.run(s.op, "/scripts load greet.lua")).To(Equal("Scripts are shutting down."))
		})
	})

	Describe("watching the scripts directory", func() {
		var w *script.Watcher

		BeforeEach(func() {
			var err error
			w, err = script.NewWatcher(s.mgr, script.WithDebounce(20*time.Millisecond))
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Start(context.Background())).To(Succeed())
			DeferCleanup(w.Stop)
		})

		It("follows create, modify and remove", func() {
			loaded := func() bool {
				_, ok := s.mgr.Get("greet.lua")
				return ok
			}

			s.write("greet.lua", greetV1)
			Eventually(loaded).WithTimeout(2 * time.Second).Should(BeTrue())
			Expect(s.run(s.op, "/hello")).To(Equal("hello v1"))

			s.write("greet.lua", greetV2)
			Eventually(func() bool {
				_, ok := s.server.Commands.Lookup("wave")
				return ok
			}).WithTimeout(2 * time.Second).Should(BeTrue())

			Expect(os.Remove(filepath.Join(s.dir, "greet.lua"))).To(Succeed())
			Eventually(loaded).WithTimeout(2 * time.Second).Should(BeFalse())
			_, ok := s.server.Commands.Lookup("hello")
			Expect(ok).To(BeFalse())
		})
	})
})
