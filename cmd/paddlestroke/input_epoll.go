//go:build linux

package main

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// startInputReader runs readInputEvents in its own goroutine. The returned
// stop wakes the reader through an eventfd, waits for it to return and then
// releases the eventfd. The device files stay open until stop has returned.
func startInputReader(files []*os.File, events chan<- inputEvent, readErr chan<- error) (func(), error) {
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	quit := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		readInputEvents(wake, quit, files, events, readErr)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(quit)
			// Any non-zero counter value makes the eventfd readable.
			_, _ = unix.Write(wake, []byte{1, 0, 0, 0, 0, 0, 0, 0})
			<-exited
			_ = unix.Close(wake)
		})
	}
	return stop, nil
}

// readInputEvents waits on all devices and the wake fd with a single epoll
// instance and forwards decoded events. It returns after reporting the first
// error, or without error once wake becomes readable.
func readInputEvents(wake int, quit <-chan struct{}, files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- fmt.Errorf("no input devices provided")
		return
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		readErr <- fmt.Errorf("epoll_create1: %w", err)
		return
	}
	defer unix.Close(epfd)

	wakeEv := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wake)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wake, &wakeEv); err != nil {
		readErr <- fmt.Errorf("epoll_ctl_add wake fd=%d: %w", wake, err)
		return
	}

	byFD := make(map[int]*os.File, len(files))
	for _, f := range files {
		fd := int(f.Fd())
		byFD[fd] = f

		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			readErr <- fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
			return
		}
	}

	const maxEvents = 32
	ready := make([]unix.EpollEvent, maxEvents)
	buf := make([]byte, inputEventSize)

	for {
		n, err := unix.EpollWait(epfd, ready, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			readErr <- fmt.Errorf("epoll_wait: %w", err)
			return
		}

		for i := 0; i < n; i++ {
			fd := int(ready[i].Fd)
			if fd == wake {
				return
			}
			f := byFD[fd]

			if ready[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				readErr <- fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
				return
			}

			if _, err := f.Read(buf); err != nil {
				readErr <- fmt.Errorf("read from %s: %w", f.Name(), err)
				return
			}

			ev, err := decodeInputEvent(buf)
			if err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-quit:
				return
			}
		}
	}
}
