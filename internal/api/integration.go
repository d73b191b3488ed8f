package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// ServerIntegration управляет жизненным циклом HTTP сервера REST API
type ServerIntegration struct {
	restServer *RestServer
	httpServer *http.Server
	listener   net.Listener
	errCh      chan error
}

// NewServerIntegration оборачивает REST сервер в http.Server со сжатием ответов
func NewServerIntegration(restServer *RestServer) *ServerIntegration {
	return &ServerIntegration{
		restServer: restServer,
		httpServer: &http.Server{
			Addr:              restServer.port,
			Handler:           gzhttp.GzipHandler(restServer.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		},
		errCh: make(chan error, 1),
	}
}

// Start открывает порт и запускает сервер в отдельной горутине
func (si *ServerIntegration) Start() error {
	ln, err := net.Listen("tcp", si.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("не удалось открыть порт %s: %w", si.httpServer.Addr, err)
	}
	si.listener = ln

	go func() {
		if err := si.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			si.restServer.logger.Error("❌ Ошибка REST API сервера: %v", err)
			si.errCh <- err
		}
		close(si.errCh)
	}()

	log := si.restServer.logger
	log.Info("✅ REST API сервер запущен на http://%s", ln.Addr())
	log.Info("📋 Доступные эндпоинты:")
	log.Info("   GET  /api/textures/atlas          - Раскладка атласа текстур")
	log.Info("   POST /api/textures/atlas/rebuild  - Пересборка атласа")
	log.Info("   GET  /api/chunk/:x/:y/:z          - Меш чанка")
	log.Info("   POST /api/chunk/:x/:y/:z/invalidate - Сброс кеша чанка")
	log.Info("   GET  /textures/atlas.png          - PNG атласа")
	log.Info("   GET  /health, /metrics")
	return nil
}

// Addr фактический адрес сервера (после Start)
func (si *ServerIntegration) Addr() string {
	if si.listener == nil {
		return si.httpServer.Addr
	}
	return si.listener.Addr().String()
}

// Errors канал фатальных ошибок сервера; закрывается после остановки
func (si *ServerIntegration) Errors() <-chan error {
	return si.errCh
}

// Stop останавливает сервер, дожидаясь завершения активных запросов
func (si *ServerIntegration) Stop(ctx context.Context) error {
	si.restServer.logger.Info("🛑 Остановка REST API сервера...")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := si.httpServer.Shutdown(ctx); err != nil {
		si.restServer.logger.Error("❌ Ошибка при остановке HTTP сервера: %v", err)
		return err
	}

	si.restServer.logger.Info("✅ REST API сервер остановлен")
	return nil
}
