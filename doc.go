// Package quarry is an embedded column-store write path for Go.
//
// Quarry turns streams of rows into durable, transactionally scoped
// rowsets. Each load targets one tablet (a shard of a table at one
// schema version) and runs under one transaction; rows are buffered in
// memory, flushed to compressed column segments when large, and sealed
// into an immutable rowset whose metadata is persisted atomically.
//
// # Quick Start
//
//	db, _ := quarry.Open("./data")
//	defer db.Close()
//
//	sch := schema.New([]schema.Column{
//		{Name: "k", Type: schema.TypeInt64, IsKey: true},
//		{Name: "pv", Type: schema.TypeInt64},
//	}, model.KeysDuplicate)
//	db.CreateTablet(10, 5, sch)
//
//	w := db.NewWriter(writer.WriteRequest{
//		TabletID: 10, SchemaHash: 5,
//		PartitionID: 2, TxnID: 77, LoadID: "load-1",
//		Shape: schema.RowShape{{Name: "k"}, {Name: "pv"}},
//	})
//	defer w.Release(ctx)
//
//	w.Write(ctx, schema.Row{schema.Int64(1), schema.Int64(3)})
//	var out []model.TabletInfo
//	w.Close(ctx, &out)
//
// # Dual Writes During Schema Change
//
// While a tablet migrates to a new schema, a load that targets the old
// tablet is also converted and written to the migration target, so the
// migration never misses in-flight data. The twin write is detected at
// writer initialization and reported in Close's output.
//
// # Cleanup
//
// A writer that never reaches a successful Close leaves a prepared
// transaction record and possibly a sealed rowset behind. Release
// deletes the records and hands the rowsets to the engine's
// unused-rowset sweep; call it on every path.
package quarry
