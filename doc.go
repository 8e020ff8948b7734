// Package migrat coordinates migration runs against a relational database, with SQL Server as
// the primary target.
//
// A [Plugin] session owns the connection pool. [Plugin.Initialize] provisions the metadata table,
// which backs the migration lock ([Plugin.Locker]) and the global state blob
// ([Plugin.StateStore]). Migration files ending in [FileExtension] are turned into [Executors]
// by the [Loader].
//
// Typical use:
//
//	opts, err := migrat.DecodeOptions(bag)
//	if err != nil {
//		return err
//	}
//	p, err := migrat.New(opts)
//	if err != nil {
//		return err
//	}
//	if err := p.Initialize(ctx); err != nil {
//		return err
//	}
//	defer p.Terminate()
package migrat
