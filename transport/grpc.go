package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	patchServiceName = "geodecomp.patch.v1.PatchService"
	deliverMethod    = "/" + patchServiceName + "/Deliver"

	mdLink     = "geodecomp-link"
	mdNanoStep = "geodecomp-nanostep"
	mdChecksum = "geodecomp-checksum"
)

// patchService is the server side of the patch delivery RPC
type patchService interface {
	Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
}

var patchServiceDesc = grpc.ServiceDesc{
	ServiceName: patchServiceName,
	HandlerType: (*patchService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "geodecomp/patch/v1/patch.proto",
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(patchService).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(patchService).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// AddressBook maps link names to the address of the process that
// listens on them.
type AddressBook struct {
	routes *xsync.Map[string, string]
}

func NewAddressBook() *AddressBook {
	return &AddressBook{routes: xsync.NewMap[string, string]()}
}

func (b *AddressBook) Set(name, addr string) { b.routes.Store(name, addr) }

func (b *AddressBook) Lookup(name string) (string, bool) { return b.routes.Load(name) }

// GRPC carries patches as unary calls. The handler only buffers the
// payload in the target mailbox, so Send returns once the peer holds it.
type GRPC struct {
	reg    registry
	book   *AddressBook
	conns  *xsync.Map[string, *grpc.ClientConn]
	server *grpc.Server
	closed atomic.Bool
}

var _ Transport = (*GRPC)(nil)

func NewGRPC(book *AddressBook, opts ...Option) *GRPC {
	if book == nil {
		book = NewAddressBook()
	}
	g := &GRPC{
		reg:    newRegistry("grpc", applyOptions(opts)),
		book:   book,
		conns:  xsync.NewMap[string, *grpc.ClientConn](),
		server: grpc.NewServer(),
	}
	g.server.RegisterService(&patchServiceDesc, g)
	return g
}

// AddressBook returns the routes used by Resolve
func (g *GRPC) AddressBook() *AddressBook { return g.book }

// Serve accepts patch deliveries on lis until Close is called
func (g *GRPC) Serve(lis net.Listener) error {
	g.reg.opts.logger.Info("serving patches", "addr", lis.Addr().String())
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (g *GRPC) Resolve(_ context.Context, name string) (Endpoint, error) {
	if g.closed.Load() {
		return Endpoint{}, ErrTransportClosed
	}
	addr, ok := g.book.Lookup(name)
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s", ErrUnknownLink, name)
	}
	return Endpoint{Name: name, Address: addr}, nil
}

func (g *GRPC) conn(addr string) (*grpc.ClientConn, error) {
	if c, ok := g.conns.Load(addr); ok {
		return c, nil
	}
	c, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	actual, loaded := g.conns.LoadOrStore(addr, c)
	if loaded {
		_ = c.Close()
	}
	return actual, nil
}

func (g *GRPC) Send(ctx context.Context, ep Endpoint, nanoStep uint64, payload []byte) error {
	if g.closed.Load() {
		return ErrTransportClosed
	}
	c, err := g.conn(ep.Address)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx,
		mdLink, ep.Name,
		mdNanoStep, strconv.FormatUint(nanoStep, 10),
		mdChecksum, strconv.FormatUint(Checksum(payload), 16),
	)
	if err := c.Invoke(ctx, deliverMethod, wrapperspb.Bytes(payload), new(emptypb.Empty)); err != nil {
		return fmt.Errorf("delivering patch %s@%d to %s: %w", ep.Name, nanoStep, ep.Address, err)
	}
	return nil
}

// Deliver implements the server side of the patch RPC
func (g *GRPC) Deliver(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	if g.closed.Load() {
		return nil, status.Error(codes.Unavailable, "transport closed")
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "missing patch metadata")
	}
	link := first(md, mdLink)
	if link == "" {
		return nil, status.Error(codes.InvalidArgument, "missing link name")
	}
	nanoStep, err := strconv.ParseUint(first(md, mdNanoStep), 10, 64)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad nanostep: %v", err)
	}
	checksum, err := strconv.ParseUint(first(md, mdChecksum), 16, 64)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad checksum: %v", err)
	}
	g.reg.box(link).deliver(nanoStep, checksum, in.GetValue())
	return &emptypb.Empty{}, nil
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (g *GRPC) Listen(_ context.Context, name string) (Mailbox, error) {
	if g.closed.Load() {
		return nil, ErrTransportClosed
	}
	b, err := g.reg.listen(name)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Close stops the server, drops client connections and cancels every
// outstanding receive
func (g *GRPC) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	g.server.Stop()
	var firstErr error
	g.conns.Range(func(addr string, c *grpc.ClientConn) bool {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		g.conns.Delete(addr)
		return true
	})
	g.reg.closeAll()
	return firstErr
}
